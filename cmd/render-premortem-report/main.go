package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"premortem/internal/premortem"
	"premortem/internal/render"
)

func main() {
	inputPath := flag.String("input", "", "Path to saved premortem report JSON")
	outputPath := flag.String("output", "report.pdf", "Path to write the PDF")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}

	in, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	var report premortem.Report
	if err := json.Unmarshal(in, &report); err != nil {
		log.Fatalf("decode report JSON: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	renderer := render.NewChromiumPDFRenderer()
	pdf, err := renderer.Render(ctx, &report)
	if err != nil {
		log.Fatalf("render pdf: %v", err)
	}

	if err := os.WriteFile(*outputPath, pdf, 0o644); err != nil {
		log.Fatalf("write pdf: %v", err)
	}
	log.Printf("wrote %s (%d bytes)", *outputPath, len(pdf))
}
