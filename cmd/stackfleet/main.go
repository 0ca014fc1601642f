// stackfleet provisions one Grafana Cloud stack per discovered client.
package main

func main() {
	Execute()
}
