package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/t9t/ntfsfs/mmapvolume"
	"github.com/t9t/ntfsfs/ntfsfs"
)

const (
	exitCodeUserError int = iota + 2
	exitCodeFunctionalError
	exitCodeTechnicalError
)

const isWin = runtime.GOOS == "windows"

var (
	// flags
	verbose                 = false
	overwriteOutputIfExists = false
	showProgress            = false
	listMode                = false
)

func main() {
	start := time.Now()
	verboseFlag := flag.Bool("v", false, "verbose; print details about what's going on")
	forceFlag := flag.Bool("f", false, "force; overwrite the output file if it already exists")
	progressFlag := flag.Bool("p", false, "progress; show progress while extracting a file")
	listFlag := flag.Bool("l", false, "list; print every path on the volume instead of extracting a file")

	flag.Usage = printUsage
	flag.Parse()

	verbose = *verboseFlag
	overwriteOutputIfExists = *forceFlag
	showProgress = *progressFlag
	listMode = *listFlag
	args := flag.Args()

	if listMode {
		if len(args) != 1 {
			printUsage()
			os.Exit(exitCodeUserError)
		}
		runList(args[0])
		return
	}

	if len(args) != 3 {
		printUsage()
		os.Exit(exitCodeUserError)
	}
	runExtract(args[0], args[1], args[2])

	printVerbose("Finished in %v\n", time.Since(start))
}

func volumePath(raw string) string {
	if isWin {
		return `\\.\` + raw
	}
	return raw
}

func openFilesystem(rawVolumePath string) (*ntfsfs.Filesystem, *mmapvolume.Volume) {
	path := volumePath(rawVolumePath)
	printVerbose("Memory-mapping volume %s\n", path)
	vol, err := mmapvolume.Open(path, 0)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open volume using path %s: %v\n", path, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	printVerbose("Reading boot sector and $MFT\n")
	fs, err := ntfsfs.Open(vol, ntfsfs.WithLogger(logger))
	if err != nil {
		vol.Close()
		fatalf(exitCodeTechnicalError, "Unable to open NTFS volume: %v\n", err)
	}
	return fs, vol
}

func runList(rawVolumePath string) {
	fs, vol := openFilesystem(rawVolumePath)
	defer vol.Close()

	cursor := fs.EnumeratePaths()
	ctx := context.Background()
	count := 0
	for {
		pr, ok := cursor.Next(ctx)
		if !ok {
			break
		}
		fmt.Println(pr.Path)
		count++
	}
	printVerbose("Listed %d paths\n", count)
}

func runExtract(rawVolumePath, pathInVolume, outfile string) {
	fs, vol := openFilesystem(rawVolumePath)
	defer vol.Close()

	root, err := fs.RootDirectory()
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to read root directory: %v\n", err)
	}

	printVerbose("Resolving %s\n", pathInVolume)
	node, err := root.PathEntry(pathInVolume)
	if err != nil {
		fatalf(exitCodeFunctionalError, "Unable to resolve path %s: %v\n", pathInVolume, err)
	}
	file, ok := node.(*ntfsfs.File)
	if !ok {
		fatalf(exitCodeFunctionalError, "%s is a directory, not a file\n", pathInVolume)
		return
	}

	in, err := os.Open(volumePath(rawVolumePath))
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open volume for streaming: %v\n", err)
	}
	defer in.Close()

	stream, err := file.OpenStream(in)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open file data stream: %v\n", err)
	}

	out, err := openOutputFile(outfile)
	if err != nil {
		fatalf(exitCodeFunctionalError, "Unable to open output file: %v\n", err)
	}
	defer out.Close()

	totalLength := int64(file.Size())
	printVerbose("Copying %d bytes (%s) of data to %s\n", totalLength, formatBytes(totalLength), outfile)
	n, err := copyWithProgress(out, stream, totalLength)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Error copying data to output file: %v\n", err)
	}
	if n != totalLength {
		fatalf(exitCodeTechnicalError, "Expected to copy %d bytes, but copied only %d\n", totalLength, n)
	}
}

func copyWithProgress(dst io.Writer, src io.Reader, totalLength int64) (written int64, err error) {
	buf := make([]byte, 1024*1024)
	if !showProgress || totalLength == 0 {
		return io.CopyBuffer(dst, src, buf)
	}

	onePercent := float64(totalLength) / float64(100.0)
	totalSize := formatBytes(totalLength)

	for {
		printProgress(written, totalSize, onePercent)

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if ew != nil {
				err = ew
				break
			}
			if nr != nw {
				err = io.ErrShortWrite
				break
			}
		}
		if er != nil {
			if er != io.EOF {
				err = er
			}
			break
		}
	}
	printProgress(written, totalSize, onePercent)
	fmt.Println()
	return written, err
}

func printProgress(n int64, totalSize string, onePercent float64) {
	percentage := float64(n) / onePercent
	barCount := int(percentage / 2.0)
	spaceCount := 50 - barCount
	fmt.Printf("\r[%s%s] %.2f%% (%s / %s)     ", strings.Repeat("|", barCount), strings.Repeat(" ", spaceCount), percentage, formatBytes(n), totalSize)
}

func openOutputFile(outfile string) (*os.File, error) {
	if overwriteOutputIfExists {
		return os.Create(outfile)
	}
	return os.OpenFile(outfile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
}

func printUsage() {
	out := os.Stderr
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(out, "\nusage: %s [flags] <volume> <path in volume> <output file>\n", exe)
	fmt.Fprintf(out, "       %s -l [flags] <volume>\n\n", exe)
	fmt.Fprintln(out, "Extract a file from an NTFS volume, or list every path on it with -l.")
	fmt.Fprintln(out, "\nFlags:")

	flag.PrintDefaults()

	fmt.Fprintf(out, "\nFor example: ")
	if isWin {
		fmt.Fprintf(out, `%s -v -f C: \Users\me\notes.txt D:\notes.txt`+"\n", exe)
	} else {
		fmt.Fprintf(out, "%s -v -f /dev/sdb1 /home/me/notes.txt ~/notes.txt\n", exe)
	}
}

func fatalf(exitCode int, format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format, v...)
	os.Exit(exitCode)
}

func printVerbose(format string, v ...interface{}) {
	if verbose {
		fmt.Printf(format, v...)
	}
}

func formatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%dB", b)
	}
	if b < 1048576 {
		return fmt.Sprintf("%.2fKiB", float32(b)/float32(1024))
	}
	if b < 1073741824 {
		return fmt.Sprintf("%.2fMiB", float32(b)/float32(1048576))
	}
	return fmt.Sprintf("%.2fGiB", float32(b)/float32(1073741824))
}
