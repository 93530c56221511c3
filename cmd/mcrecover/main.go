// Command mcrecover inspects GameCube and Dreamcast VMU memory card images
// and recovers deleted files from them.
package main

func main() {
	Execute()
}
