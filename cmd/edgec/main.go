package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sbl8/edgenet/compiler"
	"github.com/sbl8/edgenet/model"
)

func main() {
	var (
		output     = flag.String("o", "", "Write the memory plan as JSON to this file")
		reuseInput = flag.Bool("reuse-input", false, "Let later layers overwrite the network input")
		quiet      = flag.Bool("q", false, "Do not print the plan table")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("edgec - edgenet network planner v1.0.0")
		fmt.Println("Built with Go", "1.22.2")
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <network.json>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	net, err := model.LoadNetwork(args[0])
	if err != nil {
		log.Fatalf("failed to load network: %v", err)
	}

	opts := compiler.DefaultOptions()
	opts.ReuseInput = *reuseInput
	plan, err := compiler.PlanMemory(net, opts)
	if err != nil {
		log.Fatalf("planning failed: %v", err)
	}

	if !*quiet {
		if err := plan.Write(os.Stdout); err != nil {
			log.Fatalf("failed to print plan: %v", err)
		}
	}

	if *output != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			log.Fatalf("failed to encode plan: %v", err)
		}
		if err := os.WriteFile(*output, append(data, '\n'), 0o644); err != nil {
			log.Fatalf("failed to write plan: %v", err)
		}
		fmt.Printf("Wrote memory plan of %s to %s\n", net.Name, *output)
	}
}
