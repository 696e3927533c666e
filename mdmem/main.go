// Command mdmem inspects the memory captured in Windows minidump files.
package main

import "github.com/tombergan/minidump/mdmem/cmd"

func main() {
	cmd.Execute()
}
