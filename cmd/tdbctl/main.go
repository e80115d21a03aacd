// Command tdbctl is the CLI front end for the storage engine: schema
// creation, array scanning/export, consolidation, and array discovery.
// It replaces the teacher's GSF-conversion cmd/main.go with the same
// urfave/cli.App/Commands/Action shape (SPEC_FULL.md DOMAIN STACK).
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/cellgrid/tdcore"
	"github.com/cellgrid/tdcore/export"
	"github.com/cellgrid/tdcore/search"
)

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad integer %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}

func parseRange(s string, dimNum int) (*tdcore.Range, error) {
	if s == "" {
		return nil, nil
	}
	bounds, err := splitFloats(s)
	if err != nil {
		return nil, err
	}
	if len(bounds) != 2*dimNum {
		return nil, fmt.Errorf("subarray needs %d lo,hi pairs", dimNum)
	}
	r := &tdcore.Range{Lo: make([]float64, dimNum), Hi: make([]float64, dimNum)}
	for i := 0; i < dimNum; i++ {
		r.Lo[i] = bounds[2*i]
		r.Hi[i] = bounds[2*i+1]
	}
	return r, nil
}

func splitFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad float %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func cmdSchemaCreate(c *cli.Context) error {
	csvLine := c.String("schema-csv")
	schema, err := tdcore.ParseSchemaCSV(csvLine)
	if err != nil {
		return err
	}
	return tdcore.CreateArray(c.String("workspace"), c.String("group"), schema)
}

func cmdScan(c *cli.Context) error {
	ad, err := tdcore.Open(c.String("workspace"), c.String("group"), c.String("array"), tdcore.ModeRead)
	if err != nil {
		return err
	}
	defer tdcore.Close(ad)

	schema, err := tdcore.Schema(ad)
	if err != nil {
		return err
	}

	dimIDs, err := splitInts(c.String("dims"))
	if err != nil {
		return err
	}
	if dimIDs == nil {
		dimIDs = make([]int, schema.DimNum())
		for i := range dimIDs {
			dimIDs[i] = i
		}
	}
	attrIDs, err := splitInts(c.String("attrs"))
	if err != nil {
		return err
	}
	if attrIDs == nil {
		attrIDs = schema.AttributeIDsAll()
	}

	subarray, err := parseRange(c.String("subarray"), schema.DimNum())
	if err != nil {
		return err
	}

	n, err := export.CSV(ad, dimIDs, attrIDs, subarray, c.String("out"), ",", c.Int("precision"))
	if err != nil {
		return err
	}
	log.Printf("wrote %d rows to %s", n, c.String("out"))
	return nil
}

func cmdConsolidate(c *cli.Context) error {
	ad, err := tdcore.Open(c.String("workspace"), c.String("group"), c.String("array"), tdcore.ModeWrite)
	if err != nil {
		return err
	}
	defer tdcore.Close(ad)
	return tdcore.ForceConsolidate(ad)
}

func cmdInfo(c *cli.Context) error {
	ad, err := tdcore.Open(c.String("workspace"), c.String("group"), c.String("array"), tdcore.ModeRead)
	if err != nil {
		return err
	}
	defer tdcore.Close(ad)

	info, err := tdcore.DescribeArray(ad)
	if err != nil {
		return err
	}
	out := c.String("out")
	if out == "" {
		buf, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(buf))
		return nil
	}
	_, err = tdcore.WriteJSON(out, info)
	return err
}

func cmdSearch(c *cli.Context) error {
	arrays, err := search.FindArrays(c.String("workspace"))
	if err != nil {
		return err
	}
	for _, a := range arrays {
		fmt.Println(a)
	}
	return nil
}

func workspaceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "workspace", Usage: "Workspace root directory.", Required: true},
		&cli.StringFlag{Name: "group", Usage: "Group path within the workspace."},
		&cli.StringFlag{Name: "array", Usage: "Array name."},
	}
}

func main() {
	app := &cli.App{
		Name:  "tdbctl",
		Usage: "inspect, scan and consolidate storage-engine arrays",
		Commands: []*cli.Command{
			{
				Name:  "schema-create",
				Usage: "create a new array from a schema CSV line",
				Flags: append(workspaceFlags(),
					&cli.StringFlag{Name: "schema-csv", Usage: "Array schema in CSV wire form.", Required: true},
				),
				Action: cmdSchemaCreate,
			},
			{
				Name:  "scan",
				Usage: "export an array's cells to CSV",
				Flags: append(workspaceFlags(),
					&cli.StringFlag{Name: "dims", Usage: "Comma-separated dimension ids (default: all)."},
					&cli.StringFlag{Name: "attrs", Usage: "Comma-separated attribute ids (default: all)."},
					&cli.StringFlag{Name: "subarray", Usage: "Comma-separated lo,hi pairs, one per dimension."},
					&cli.StringFlag{Name: "out", Usage: "Output CSV path.", Required: true},
					&cli.IntFlag{Name: "precision", Usage: "Floating point decimal precision.", Value: 6},
				),
				Action: cmdScan,
			},
			{
				Name:  "consolidate",
				Usage: "force-merge every fragment of an array",
				Flags: workspaceFlags(),
				Action: cmdConsolidate,
			},
			{
				Name:  "info",
				Usage: "dump an array's schema and fragment tree as JSON",
				Flags: append(workspaceFlags(),
					&cli.StringFlag{Name: "out", Usage: "Output JSON path (default: stdout)."},
				),
				Action: cmdInfo,
			},
			{
				Name:  "search",
				Usage: "recursively list array directories under a workspace",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "workspace", Usage: "Workspace root directory.", Required: true},
				},
				Action: cmdSearch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
