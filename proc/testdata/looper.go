package main

import "time"

func spin() {
	for i := 0; ; i++ {
		time.Sleep(time.Millisecond)
	}
}

func main() {
	spin()
}
