// discfs is a small inspection tool for FAT and NTFS filesystem images: it
// lists directories, prints files, shows volume facts and formats fresh FAT
// volumes, all without mounting anything through the kernel.
package main

import (
	"github.com/sirupsen/logrus"
)

func main() {
	if err := newApp().Execute(); err != nil {
		logrus.Fatal(err)
	}
}
