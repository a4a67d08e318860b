// Warden - Autonomous Action Governor
// Propose. Govern. Dispatch.
package main

func main() {
	Execute()
}
