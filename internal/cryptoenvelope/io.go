package cryptoenvelope

import "os"

func defaultReadPEMFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
