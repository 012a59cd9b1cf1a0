// Command labels freezes the class order of a training directory into the
// manifest the server reads next to the model.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Brownie44l1/leaf-doctor/internal/config"
	"github.com/Brownie44l1/leaf-doctor/internal/labels"
	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	dataset := flag.String("dataset", cfg.DatasetDir, "training directory whose children are the class names")
	out := flag.String("out", cfg.ManifestPath, "manifest file to write")
	imageSize := flag.Int("image-size", preprocess.InputSize, "input resolution the model was trained with")
	force := flag.Bool("force", false, "overwrite an existing manifest")
	flag.Parse()

	if err := run(*dataset, *out, *imageSize, *force); err != nil {
		fmt.Fprintf(os.Stderr, "labels: %v\n", err)
		os.Exit(1)
	}
}

func run(dataset, out string, imageSize int, force bool) error {
	if !force {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists, pass -force to replace it", out)
		}
	}

	set, err := labels.FromDirectory(dataset)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		return fmt.Errorf("%s has no entries", dataset)
	}

	if err := labels.WriteManifest(out, labels.NewManifest(set, dataset, imageSize)); err != nil {
		return err
	}

	fmt.Printf("Wrote %d classes to %s\n", len(set), out)
	for i, l := range set {
		fmt.Printf("%4d  %s\n", i, l)
	}
	return nil
}
