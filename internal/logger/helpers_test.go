package logger

import "os"

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // test path
	return string(data), err
}
