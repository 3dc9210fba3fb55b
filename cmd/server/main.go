package main

func main() {
	srv := NewServer()
	srv.Run()
}
