package main

// #cgo CFLAGS: -g -Wall -O0
/*
void sigsegv(int x) {
	int *p = 0;
	*p = x;
}
*/
import "C"

func main() {
	C.sigsegv(C.int(10))
}
