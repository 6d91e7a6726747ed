package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sticky3d/glbrescale/glb"
)

// CreatePack reads .glb files and writes a .glbpack to outputFile.
// Entries keep the order of inputFiles; their scale is recorded as unknown.
func CreatePack(inputFiles []string, outputFile string, layout glb.PackLayout, comp glb.PackCompression) error {
	if len(inputFiles) == 0 {
		return fmt.Errorf("no .glb files provided")
	}
	type item struct {
		name    string
		payload []byte
		err     error
	}
	items := make([]item, len(inputFiles))

	var wg sync.WaitGroup
	for i := range inputFiles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := inputFiles[i]
			b, err := os.ReadFile(path)
			if err != nil {
				items[i].err = err
				return
			}
			// reject anything that does not parse as glTF
			if _, err := glb.Decode(b); err != nil {
				items[i].err = fmt.Errorf("%s: %w", path, err)
				return
			}
			items[i] = item{name: filepath.Base(path), payload: b}
		}(i)
	}
	wg.Wait()

	pack := &glb.Pack{Entries: make([]glb.PackEntry, 0, len(items))}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.err != nil {
			return it.err
		}
		if seen[it.name] {
			return fmt.Errorf("duplicate file name %s", it.name)
		}
		seen[it.name] = true
		pack.Entries = append(pack.Entries, glb.PackEntry{Name: it.name, Payload: it.payload})
	}
	start := time.Now()
	data, err := pack.Marshal(layout, comp)
	if err != nil {
		return err
	}
	fmt.Printf("Packing %d files (%s) took %d ms\n", len(pack.Entries), comp, time.Since(start).Milliseconds())
	return os.WriteFile(outputFile, data, 0o644)
}

// UnpackToDir writes the .glb files of a .glbpack into outputDir.
func UnpackToDir(packFile, outputDir string) error {
	data, err := os.ReadFile(packFile)
	if err != nil {
		return err
	}
	pack, _, err := glb.UnmarshalPack(data)
	if err != nil {
		return err
	}
	for _, e := range pack.Entries {
		name := filepath.Base(e.Name)
		if name != e.Name || name == "." || name == ".." {
			return fmt.Errorf("unsafe entry name %q", e.Name)
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(pack.Entries))
	for _, e := range pack.Entries {
		wg.Add(1)
		go func(e glb.PackEntry) {
			defer wg.Done()
			if err := os.WriteFile(filepath.Join(outputDir, e.Name), e.Payload, 0o644); err != nil {
				errCh <- err
			}
		}(e)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// UnpackToMemory returns names and raw .glb bytes without writing to disk.
func UnpackToMemory(packFile string) ([]string, [][]byte, error) {
	data, err := os.ReadFile(packFile)
	if err != nil {
		return nil, nil, err
	}
	pack, _, err := glb.UnmarshalPack(data)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(pack.Entries))
	blobs := make([][]byte, len(pack.Entries))
	for i, e := range pack.Entries {
		names[i] = e.Name
		blobs[i] = e.Payload
	}
	return names, blobs, nil
}
