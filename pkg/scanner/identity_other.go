//go:build !unix

package scanner

import "os"

func fileIdentity(os.FileInfo) (fileID, bool) {
	return fileID{}, false
}
