package main

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// assertions mirrors the W3C SCXML IRP manifest.xml schema closely enough
// to pull out every test's start and dependency URIs.
type assertions struct {
	XMLName xml.Name `xml:"assertions"`
	Asserts []struct {
		Test struct {
			Starts []struct {
				URI string `xml:"uri,attr"`
			} `xml:"start"`
			Deps []struct {
				URI string `xml:"uri,attr"`
			} `xml:"dep"`
		} `xml:"test"`
	} `xml:"assert"`
}

const (
	irpBaseURL  = "https://www.w3.org/Voice/2013/scxml-irp/"
	manifestURL = irpBaseURL + "manifest.xml"
)

var (
	fetchForce   bool
	fetchOutDir  string
)

var fetchTestsCmd = &cobra.Command{
	Use:   "fetch-tests",
	Short: "Download the W3C SCXML IRP conformance test suite",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath := filepath.Join(fetchOutDir, "manifest.xml")
		if fetchForce || !exists(manifestPath) {
			if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}
			if err := downloadWithBackoff(manifestURL, manifestPath); err != nil {
				return fmt.Errorf("fetch manifest: %w", err)
			}
		}

		uris, err := testURIs(manifestPath)
		if err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}
		logger.Info("manifest parsed", zap.Int("uris", len(uris)))
		fmt.Printf("found %d unique test URIs in manifest\n", len(uris))

		var downloaded, skipped int
		for _, rel := range uris {
			local := filepath.Join(fetchOutDir, rel)
			if exists(local) && !fetchForce {
				skipped++
				continue
			}
			if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", filepath.Dir(local), err)
				continue
			}
			if err := downloadWithBackoff(irpBaseURL+rel, local); err != nil {
				fmt.Fprintf(os.Stderr, "download %s: %v\n", rel, err)
				continue
			}
			downloaded++
		}
		fmt.Printf("downloaded %d, skipped %d (total %d)\n", downloaded, skipped, len(uris))
		return nil
	},
}

func init() {
	fetchTestsCmd.Flags().BoolVarP(&fetchForce, "force", "f", false, "re-download the manifest and tests even if already present")
	fetchTestsCmd.Flags().StringVar(&fetchOutDir, "out", "testdata/scxml-irp", "directory to save the manifest and test files")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func downloadWithBackoff(url, localPath string) error {
	const maxRetries = 5
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			defer resp.Body.Close()
			out, err := os.Create(localPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", localPath, err)
			}
			defer out.Close()
			_, err = io.Copy(out, resp.Body)
			return err
		}
		if err == nil {
			resp.Body.Close()
		}
		if attempt == maxRetries {
			if err != nil {
				return fmt.Errorf("fetch %s: %w", url, err)
			}
			return fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
		}
		time.Sleep(time.Duration(math.Pow(2, float64(attempt))) * baseDelay)
	}
	return fmt.Errorf("max retries exceeded fetching %s", url)
}

func testURIs(manifestPath string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var a assertions
	if err := xml.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, assert := range a.Asserts {
		for _, s := range assert.Test.Starts {
			seen[s.URI] = struct{}{}
		}
		for _, d := range assert.Test.Deps {
			seen[d.URI] = struct{}{}
		}
	}
	uris := make([]string, 0, len(seen))
	for u := range seen {
		uris = append(uris, u)
	}
	sort.Strings(uris)
	return uris, nil
}
