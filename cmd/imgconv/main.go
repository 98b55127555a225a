package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	gologging "github.com/op/go-logging"

	"github.com/pspoerri/imgio/internal/codec"
	"github.com/pspoerri/imgio/internal/logging"
	"github.com/pspoerri/imgio/internal/opener"
	"github.com/pspoerri/imgio/internal/preview"
	"github.com/pspoerri/imgio/internal/progress"
	"github.com/pspoerri/imgio/internal/stream"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var log = gologging.MustGetLogger("imgconv")

// config holds everything a conversion job needs.
type config struct {
	outDir    string
	writeTIFF bool
	raw       *opener.RawOptions
	enc       preview.Encoder
	thumb     int
	slice     int
	opts      opener.Options
}

func main() {
	var (
		outDir      string
		noTIFF      bool
		format      string
		quality     int
		thumb       int
		slice       int
		width       int
		height      int
		kind        string
		offset      int64
		images      int
		gap         int64
		little      bool
		whiteIsZero bool
		concurrency int
		cacheDir    string
		verbose     bool
		showVersion bool
		cpuProfile  string
	)

	flag.StringVar(&outDir, "o", ".", "Output directory")
	flag.BoolVar(&noTIFF, "no-tiff", false, "Do not write TIFF output")
	flag.StringVar(&format, "preview", "", "Also write a preview image: png, jpeg, webp")
	flag.IntVar(&quality, "quality", 85, "JPEG/WebP preview quality 1-100")
	flag.IntVar(&thumb, "thumb", 0, "Scale previews down to at most this many pixels per side (0 = full size)")
	flag.IntVar(&slice, "slice", 0, "Stack slice shown in the preview")
	flag.IntVar(&width, "width", 0, "Raw input: image width (enables raw mode)")
	flag.IntVar(&height, "height", 0, "Raw input: image height")
	flag.StringVar(&kind, "kind", "gray8", "Raw input: pixel kind (gray8, gray16-unsigned, rgb, ...)")
	flag.Int64Var(&offset, "offset", 0, "Raw input: offset of the first image")
	flag.IntVar(&images, "images", 1, "Raw input: number of images")
	flag.Int64Var(&gap, "gap", 0, "Raw input: bytes between images")
	flag.BoolVar(&little, "little", false, "Raw input: little-endian samples")
	flag.BoolVar(&whiteIsZero, "white-is-zero", false, "Raw input: inverted gray values")
	flag.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of files converted in parallel")
	flag.StringVar(&cacheDir, "cache-dir", "", "Keep downloads of URLs without range support here")
	flag.BoolVar(&verbose, "verbose", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: imgconv [flags] <input-files-or-urls...>\n\n")
		fmt.Fprintf(os.Stderr, "Convert TIFF, ZIP and raw images to uncompressed TIFF and previews.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("imgconv %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	logging.Configure(os.Stderr, verbose)

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Creating CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Starting CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
		log.Debugf("CPU profiling enabled → %s", cpuProfile)
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config{
		outDir:    outDir,
		writeTIFF: !noTIFF,
		thumb:     thumb,
		slice:     slice,
		opts:      opener.Options{Stream: stream.Options{CacheDir: cacheDir}},
	}
	if width > 0 {
		k, err := codec.ParseKind(kind)
		if err != nil {
			log.Fatalf("Kind: %v", err)
		}
		cfg.raw = &opener.RawOptions{
			Width: width, Height: height, Kind: k,
			Offset: offset, Images: images, Gap: gap,
			LittleEndian: little, WhiteIsZero: whiteIsZero,
		}
	}
	if format != "" {
		enc, err := preview.NewEncoder(format, quality)
		if err != nil {
			log.Fatalf("Preview: %v", err)
		}
		cfg.enc = enc
	}
	if !cfg.writeTIFF && cfg.enc == nil {
		log.Fatal("Nothing to write: -no-tiff without -preview")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Creating output directory: %v", err)
	}

	// Ctrl-C stops the running decoders before their next image.
	var aborted atomic.Bool
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		aborted.Store(true)
	}()
	cfg.opts.Abort = aborted.Load

	fmt.Printf("imgconv %s (commit %s, built %s)\n", version, commit, buildDate)
	fmt.Printf("  %-14s %d file(s)\n", "Input:", len(inputs))
	fmt.Printf("  %-14s %s\n", "Output:", outDir)
	if cfg.enc != nil {
		fmt.Printf("  %-14s %s (quality: %d)\n", "Preview:", cfg.enc.Format(), quality)
	}
	fmt.Printf("  %-14s %d\n", "Concurrency:", concurrency)

	start := time.Now()
	var failed int
	if len(inputs) == 1 {
		bar := progress.NewFraction(os.Stderr, filepath.Base(inputs[0]))
		cfg.opts.Progress = bar.Set
		err := convert(inputs[0], cfg)
		bar.Finish()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", inputs[0], err)
			failed++
		}
	} else {
		failed = convertAll(inputs, cfg, concurrency)
	}

	fmt.Printf("Done: %d of %d file(s) in %v\n", len(inputs)-failed, len(inputs), time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}

// convertAll converts independent files in a worker pool and returns the
// number of failures.
func convertAll(inputs []string, cfg config, concurrency int) int {
	concurrency = max(concurrency, 1)
	bar := progress.New(os.Stderr, "Converting", "files", int64(len(inputs)))
	defer bar.Finish()

	jobs := make(chan string, concurrency*2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed int

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				if err := convert(name, cfg); err != nil {
					mu.Lock()
					failed++
					fmt.Fprintf(os.Stderr, "\n%s: %v\n", name, err)
					mu.Unlock()
				}
				bar.Increment()
			}
		}()
	}

	for _, name := range inputs {
		jobs <- name
	}
	close(jobs)
	wg.Wait()
	return failed
}

// convert reads one input and writes its outputs.
func convert(name string, cfg config) error {
	imgs, err := load(name, cfg)
	if err != nil && len(imgs) == 0 {
		return err
	}
	if err != nil {
		// Truncated input: keep what was read.
		log.Warningf("%s: %v", name, err)
		for _, img := range imgs {
			if st, ok := img.Pixels.(codec.Stack); ok && len(st) < img.Descriptor.NumImages() {
				img.Descriptor.Images = len(st)
			}
		}
	}
	base := stem(name)

	if cfg.writeTIFF {
		for i, img := range imgs {
			out := base + ".tif"
			if len(imgs) > 1 {
				out = fmt.Sprintf("%s_%d.tif", base, i)
			}
			if err := writeTIFF(filepath.Join(cfg.outDir, out), img); err != nil {
				return err
			}
		}
	}
	if cfg.enc != nil {
		d, p, err := previewSource(name, imgs, cfg)
		if err != nil {
			return errors.Annotate(err, "preview")
		}
		if err := writePreview(filepath.Join(cfg.outDir, base+cfg.enc.FileExtension()), &d, p, cfg); err != nil {
			return err
		}
	}
	return nil
}

func load(name string, cfg config) ([]*opener.Image, error) {
	if cfg.raw != nil {
		img, err := opener.OpenRaw(name, *cfg.raw, cfg.opts)
		if img == nil {
			return nil, err
		}
		return []*opener.Image{img}, err
	}
	f, err := opener.Open(name, cfg.opts)
	if f == nil {
		return nil, err
	}
	if len(f.Images) == 0 && err == nil {
		return nil, errors.NotFoundf("image in %s (%s)", name, f.Type)
	}
	return f.Images, err
}

// previewSource picks the slice to preview. TIFF stacks are read again
// slice by slice so a single slice is decoded without holding the stack.
func previewSource(name string, imgs []*opener.Image, cfg config) (codec.Descriptor, codec.Pixels, error) {
	if cfg.slice == 0 || cfg.raw != nil {
		first := imgs[0]
		return first.Descriptor, first.Pixels, nil
	}
	sr, err := opener.OpenStack(name, cfg.opts, opener.DefaultSliceCache)
	if err != nil {
		return codec.Descriptor{}, nil, err
	}
	defer sr.Close()
	d, err := sr.Descriptor(cfg.slice)
	if err != nil {
		return codec.Descriptor{}, nil, err
	}
	p, err := sr.Slice(cfg.slice)
	return d, p, err
}

func writeTIFF(path string, img *opener.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return codec.Resource(err, "creating %s", path)
	}
	if err := opener.Encode(&img.Descriptor, img.Pixels, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writePreview(path string, d *codec.Descriptor, p codec.Pixels, cfg config) error {
	img, err := preview.ToImage(d, p)
	if err != nil {
		return err
	}
	img = preview.Thumbnail(img, cfg.thumb)
	data, err := cfg.enc.Encode(img)
	if err != nil {
		return errors.Annotatef(err, "encoding %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return codec.Resource(err, "writing %s", path)
	}
	log.Debugf("%s: %dx%d %s preview, %s", path, img.Bounds().Dx(), img.Bounds().Dy(), cfg.enc.Format(), humanSize(int64(len(data))))
	return nil
}

// stem returns the base name of a path or URL without its extensions.
func stem(name string) string {
	base := filepath.Base(name)
	lower := strings.ToLower(base)
	for _, ext := range []string{".gz", ".tif", ".tiff", ".zip", ".roi", ".raw"} {
		if strings.HasSuffix(lower, ext) {
			base = base[:len(base)-len(ext)]
			lower = lower[:len(lower)-len(ext)]
		}
	}
	if base == "" {
		return "image"
	}
	return base
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
