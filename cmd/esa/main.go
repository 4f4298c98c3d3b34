// Command esa runs evidence-refined question answering over a dataset,
// serves the Temporal worker for distributed runs, and scores predictions.
package main

func main() {
	Execute()
}
