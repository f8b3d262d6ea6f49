package protocol

import (
	"fmt"
	"os"
	"path"
)

// LocateSoloDir locates the directory of a solo daemon: $SOLODIR if set, else $HOME/.solo.
func LocateSoloDir() (string, error) {
	if dir := os.Getenv("SOLODIR"); dir != "" {
		return dir, nil
	}
	homedir := os.Getenv("HOME")
	if homedir == "" {
		return "", fmt.Errorf("Cannot find home directory; $HOME unset")
	}
	return path.Join(homedir, ".solo"), nil
}

// LocateSocket locates the path to the socket of a solo daemon
func LocateSocket() (string, error) {
	solodir, err := LocateSoloDir()
	if err != nil {
		return "", err
	}
	return SocketForDir(solodir), nil
}

func SocketForDir(dir string) string {
	return path.Join(dir, "socket")
}
