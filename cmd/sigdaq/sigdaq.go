package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	sysctl "github.com/lorenzosaino/go-sysctl"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sigdaq/sigdaq"
	"github.com/sigdaq/sigdaq/sigdb"
	"github.com/sigdaq/sigdaq/wave"
)

var githash = "githash not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	// Create directory <path>, if needed
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		err2 := os.MkdirAll(dir, 0775)
		if err2 != nil {
			return "", err2
		}
	}

	// Create an empty file path/filename, if it doesn't exist.
	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. Sets some defaults.
func setupViper() error {
	viper.SetDefault("Verbose", false)

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotSigdaq := filepath.Join(HOME, ".sigdaq")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotSigdaq, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/sigdaq"))
	viper.AddConfigPath(dotSigdaq)
	viper.AddConfigPath(".")
	err = viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		msg := fmt.Sprintf("Could not open log file '%s'", pfname)
		panic(msg)
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

// checkReceiveBuffer warns if the kernel's TCP receive buffer cap is too
// small to keep a 10M-sample transfer from stalling the scope.
func checkReceiveBuffer() {
	const want = 4 << 20
	val, err := sysctl.Get("net.core.rmem_max")
	if err != nil {
		return
	}
	rmem, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}
	if rmem < want {
		fmt.Printf("Warning: net.core.rmem_max is %d; waveform downloads are faster with %d or more.\n"+
			"Consider: sudo sysctl -w net.core.rmem_max=%d\n", rmem, want, want)
	}
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	sigdaq.Build.Date = buildDate
	sigdaq.Build.Githash = githash
	sigdaq.Build.Summary = fmt.Sprintf("SIGDAQ version %s (git commit %s)", sigdaq.Build.Version, githash)
	if host, err := os.Hostname(); err == nil {
		sigdaq.Build.Host = host
	} else {
		sigdaq.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	addr := flag.String("addr", "localhost:5025", "scope SCPI socket address")
	pubPort := flag.Int("pub", 5501, "TCP port for the waveform PUB socket")
	useDB := flag.Bool("db", false, "record acquisitions to ClickHouse")
	pingDB := flag.Bool("pingdb", false, "check the ClickHouse connection and quit")
	hd := flag.Bool("hd", false, "use 16-bit waveform transfers")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is SIGDAQ version %s\n", sigdaq.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		fmt.Printf("Running on %d CPUs.\n", runtime.NumCPU())
		os.Exit(0)
	}
	if *pingDB {
		if err := sigdb.PingServer(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	banner := fmt.Sprintf("\nThis is SIGDAQ version %s (git commit %s)\n", sigdaq.Build.Version, githash)
	fmt.Print(banner)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".sigdaq", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	sigdaq.ProblemLogger = startLogger(problemname)
	sigdaq.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems to %s\n", problemname)
	fmt.Printf("Logging updates  to %s\n\n", logname)
	sigdaq.UpdateLogger.Printf("\n\n\n\n%s", banner)

	// Find config file, creating it if needed, and read it.
	if err := setupViper(); err != nil {
		panic(err)
	}

	checkReceiveBuffer()

	transport, err := dialScope(*addr)
	if err != nil {
		log.Fatal(err)
	}
	defer transport.Close()

	scope, err := sigdaq.New(transport)
	if err != nil {
		log.Fatalf("could not attach to scope: %v", err)
	}
	scope.SetHighDefinition(*hd)
	id := scope.Identity()
	fmt.Printf("Attached to %s %s (serial %s, firmware %s), %d channels\n",
		id.Vendor, id.Model, id.Serial, id.Firmware, id.AnalogChannels)

	publisher, err := sigdaq.NewWaveformPublisher(*pubPort)
	if err != nil {
		log.Fatalf("could not bind PUB socket: %v", err)
	}
	defer publisher.Close()

	abort := make(chan struct{})
	db := sigdb.DummyConnection()
	if *useDB {
		activity := &sigdb.ActivityMessage{
			ID:        ulid.Make().String(),
			Hostname:  sigdaq.Build.Host,
			Githash:   githash,
			Version:   sigdaq.Build.Version,
			GoVersion: runtime.Version(),
			CPUs:      runtime.NumCPU(),
			Start:     time.Now(),
		}
		db = sigdb.StartConnection(activity, abort)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	scope.Start()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nStopping.")
			scope.Stop()
			close(abort)
			db.Wait()
			return

		case <-ticker.C:
			if scope.PollTrigger() != sigdaq.TriggerModeTriggered {
				continue
			}
			if err := scope.AcquireData(); err != nil {
				sigdaq.ProblemLogger.Printf("acquisition failed: %v", err)
				continue
			}
			sets := scope.PendingWaveforms()
			recordSets(scope, db, sets)
			for _, set := range sets {
				if err := publisher.Publish(set); err != nil {
					sigdaq.ProblemLogger.Printf("publish failed: %v", err)
				}
			}
		}
	}
}

// recordSets writes one acquisition row plus per-waveform statistics.
func recordSets(scope *sigdaq.Scope, db *sigdb.Connection, sets []sigdaq.SequenceSet) {
	if !db.IsConnected() || len(sets) == 0 {
		return
	}
	id := scope.Identity()

	nsamples := 0
	for _, w := range sets[0].Waveforms {
		nsamples = len(w.Samples)
		break
	}
	db.RecordAcquisition(&sigdb.AcquisitionMessage{
		ID:         sets[0].ID,
		Model:      id.Model,
		Serial:     id.Serial,
		Segments:   len(sets),
		Nchannels:  len(sets[0].Waveforms),
		NSamples:   nsamples,
		SampleRate: scope.GetSampleRate(),
		Timestamp:  time.Now(),
	})
	for _, set := range sets {
		for ch, w := range set.Waveforms {
			s := wave.Summarize(w)
			db.RecordWaveform(&sigdb.WaveformMessage{
				AcquisitionID: set.ID,
				Segment:       set.Segment,
				Channel:       ch,
				ChanName:      scope.GetChannelDisplayName(ch),
				SamplePeriod:  w.SamplePeriod,
				Min:           s.Min,
				Max:           s.Max,
				Mean:          s.Mean,
			})
		}
	}
}
