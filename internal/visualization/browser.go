package visualization

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser shows target, a URL or a local HTML file, in the user's
// default browser. It does not wait for the browser to exit.
func OpenBrowser(target string) error {
	name, args, err := browserCommand(runtime.GOOS, target)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

func browserCommand(goos, target string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "xdg-open", []string{target}, nil
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		// The empty argument is the window title consumed by start.
		return "cmd", []string{"/c", "start", "", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
