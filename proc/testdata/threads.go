package main

import (
	"runtime"
	"time"
)

const numWorkers = 4

func spin() {
	runtime.LockOSThread()
	for {
		time.Sleep(time.Millisecond)
	}
}

func main() {
	for i := 0; i < numWorkers; i++ {
		go spin()
	}
	spin()
}
