// Command xds-seed bulk-generates synthetic bundle files for the file
// snapshotsource, useful for load-testing a control plane with many
// node groups before real configuration exists.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/kr/pretty"
)

var (
	outDir  = flag.String("out", "./seed", "directory to write bundle files into")
	count   = flag.Int("count", 100, "number of synthetic node-group bundles to generate")
	verbose = flag.Bool("verbose", false, "dump each generated bundle with kr/pretty")
)

func main() {
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("creating %s: %v", *outDir, err)
	}

	bar := pb.StartNew(*count)
	defer bar.Finish()

	for i := 0; i < *count; i++ {
		group := fmt.Sprintf("group-%04d", i)
		correlationID := uuid.New().String()

		doc := seedBundle{
			Version: correlationID,
			Group:   group,
		}
		if *verbose {
			pretty.Println(doc)
		}

		path := filepath.Join(*outDir, group+".yaml")
		if err := os.WriteFile(path, []byte(doc.render()), 0o644); err != nil {
			log.Fatalf("writing %s: %v", path, err)
		}
		bar.Increment()
	}
}

type seedBundle struct {
	Version string
	Group   string
}

func (b seedBundle) render() string {
	return fmt.Sprintf(`version: %q
resources:
  %s:
    seed-cluster-%s:
      name: seed-cluster-%s
      connect_timeout: "1s"
`, b.Version, clusterType, b.Group, b.Group)
}

const clusterType = "type.googleapis.com/envoy.config.cluster.v3.Cluster"
