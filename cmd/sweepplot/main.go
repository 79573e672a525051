// sweepplot renders a coverage plan, and optionally a recorded track, to
// PNG for offline inspection of a sweep.
//
// Typical use:
//
//	sweepplot -config dev.yaml -farm 1 -track track.log -out sweep.png
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"fieldsweep/internal/config"
	"fieldsweep/internal/farm"
	"fieldsweep/internal/flightlog"
	"fieldsweep/internal/planner"
)

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)

	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	p.X.Label.Padding = vg.Points(6)
	p.Y.Label.Padding = vg.Points(6)

	p.X.Tick.Label.Font.Size = vg.Points(10)
	p.Y.Tick.Label.Font.Size = vg.Points(10)

	p.Legend.Top = true
	p.Legend.TextStyle.Font.Size = vg.Points(10)
}

func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if dir := filepath.Dir(filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
	}
	w := vg.Length(widthIn) * vg.Inch
	h := vg.Length(heightIn) * vg.Inch

	c := vgimg.NewWith(
		vgimg.UseWH(w, h),
		vgimg.UseDPI(150),
	)
	dc := draw.New(c)
	p.Draw(dc)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	defer bw.Flush()

	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return nil
}

func boundaryLine(b planner.Boundary) plotter.XYs {
	return plotter.XYs{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY},
		{X: b.MinX, Y: b.MaxY},
		{X: b.MinX, Y: b.MinY},
	}
}

func pathLine(wps []planner.Waypoint) plotter.XYs {
	pts := make(plotter.XYs, len(wps))
	for i, wp := range wps {
		pts[i].X = wp.Pos.X
		pts[i].Y = wp.Pos.Y
	}
	return pts
}

func trackLine(recs []flightlog.Record) plotter.XYs {
	pts := make(plotter.XYs, len(recs))
	for i, r := range recs {
		pts[i].X = r.Pos[0]
		pts[i].Y = r.Pos[1]
	}
	return pts
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, col color.RGBA, dashed bool) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = col
	if dashed {
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

func main() {
	var (
		configPath string
		farmID     int
		trackPath  string
		outPath    string
	)
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.IntVar(&farmID, "farm", 0, "Farm ID to plot the plan for")
	flag.StringVar(&trackPath, "track", "", "Optional recorded track to overlay")
	flag.StringVar(&outPath, "out", "sweep.png", "Output PNG path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	farms, err := farm.NewStore(cfg.Farms.Path)
	if err != nil {
		log.Fatalf("farm store open failed: %v", err)
	}

	f, ok := farms.Get(farmID)
	if !ok {
		log.Fatalf("farm %d not found in %s", farmID, cfg.Farms.Path)
	}

	plan, err := planner.Plan(f.Boundary, cfg.Mission.SweepStepM, cfg.Mission.HoverAltitudeM, cfg.Mission.StandoffMarginM)
	if err != nil {
		log.Fatalf("plan failed: %v", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (farm %d)", f.Name, f.ID)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	stylePlot(p)

	if err := addLine(p, "field boundary", boundaryLine(f.Boundary), color.RGBA{90, 90, 90, 255}, false); err != nil {
		log.Fatalf("boundary line: %v", err)
	}
	if err := addLine(p, "planned path", pathLine(plan), color.RGBA{40, 140, 255, 255}, true); err != nil {
		log.Fatalf("plan line: %v", err)
	}

	if trackPath != "" {
		recs, err := flightlog.ReadFile(trackPath)
		if err != nil {
			log.Fatalf("track read failed: %v", err)
		}
		if len(recs) > 0 {
			if err := addLine(p, "flown track", trackLine(recs), color.RGBA{240, 70, 70, 255}, false); err != nil {
				log.Fatalf("track line: %v", err)
			}
		}
	}

	if err := savePlotPNG(p, 8.0, 6.0, outPath); err != nil {
		log.Fatalf("plot save failed: %v", err)
	}
	log.Printf("wrote %s (%d waypoints)", outPath, len(plan))
}
