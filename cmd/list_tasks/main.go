// Package main is the list_tasks CLI: it prints the registered task
// names and their one-line descriptions.
package main

import (
	"fmt"
	"os"

	"github.com/taskqueue/engine/internal/registry"
	"github.com/taskqueue/engine/internal/tasks"
)

func main() {
	reg := registry.New()
	tasks.Register(reg)
	reg.Freeze()

	names := reg.Names()
	if len(names) == 0 {
		fmt.Println("No tasks registered.")
		return
	}

	fmt.Println("Registered tasks:")
	for _, name := range names {
		fmt.Printf("\n- %s\n", name)
		if desc := reg.Description(name); desc != "" {
			fmt.Printf("  %s\n", desc)
		}
	}
	fmt.Printf("\nTotal: %d tasks\n", len(names))

	os.Exit(0)
}
