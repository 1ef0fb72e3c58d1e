package utils

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"npcs-desk/constants"
)

// AppDataPath returns where the app data document lives for goos.
// home and appData are the user's home directory and %APPDATA%.
func AppDataPath(goos, home, appData string) string {
	var base string
	switch goos {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support", constants.AppDataDir)
	case "windows":
		base = filepath.Join(appData, constants.AppDataDir)
	default:
		base = filepath.Join(home, "."+constants.AppDataDir)
	}
	return filepath.Join(base, constants.AppDataFile)
}

// WriteFileAtomic writes data next to file and renames it into place.
func WriteFileAtomic(file string, data []byte) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(dir, filepath.Base(file)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

// DirBaseName is the last element of a directory path, ignoring
// trailing separators.
func DirBaseName(path string) string {
	return filepath.Base(strings.TrimRight(path, `/\`))
}
