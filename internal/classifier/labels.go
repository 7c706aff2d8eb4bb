package classifier

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Brownie44l1/lesion-api/internal/assets"
)

// UnknownLabel names output classes beyond the end of the vocabulary.
const UnknownLabel = "Unknown"

// loadLabels reads one label per line. Blank lines are kept so that line
// order stays aligned with output indices.
func loadLabels(store assets.Store, name string) ([]string, error) {
	rc, err := store.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return readLabels(rc)
}

func readLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		labels = append(labels, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}

func labelAt(labels []string, i int) string {
	if i >= 0 && i < len(labels) {
		return labels[i]
	}
	return UnknownLabel
}
