package testing

import (
	"os"
	"path"
	"runtime"
)

func init() {
	// tests chdir to the repo root so logs/ and sqlite files land in one place
	//
	//   in some_test.go,
	//   import (
	//     _ "liyu1981.xyz/greenhouse-relay/pkg/testing"
	//   )

	_, filename, _, _ := runtime.Caller(0)
	dir := path.Join(path.Dir(filename), "..", "..")
	err := os.Chdir(dir)
	if err != nil {
		panic(err)
	}
}
