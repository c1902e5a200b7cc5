package config

// DocumentFileExt is the preferred extension of function documents.
const DocumentFileExt = ".nf.yaml"

// DocumentFileExtensions are all recognized function document extensions.
var DocumentFileExtensions = []string{".nf.yaml", ".nf.yml", ".yaml", ".yml"}

// BundleFileExt is the extension written by `numfn bundle`.
const BundleFileExt = ".nfb"

// Config file names searched by FindConfig, in order.
var ConfigFileNames = []string{"numfn.yaml", "numfn.yml"}

// Defaults for numfn.yaml keys.
const (
	DefaultStackCapacity = 255
	DefaultCachePath     = ".numfn/cache.db"
	DefaultListenAddr    = "127.0.0.1:7311"

	// CacheOff as the cache value disables the artifact cache. An empty or
	// missing value selects DefaultCachePath.
	CacheOff = "off"
)

// Names used in emitted C source.
const (
	DefaultSubfunctionPrefix = "NUMFN_Subfunction_"
	DefaultOutputArray       = "numfn_ret"
	DefaultInputArray        = "numfn_in"
	PiConstantName           = "MATH_PI"
)

// Backend names accepted by --backend and the pipeline.
const (
	BackendVM     = "vm"
	BackendTree   = "tree"
	BackendSource = "c"
)

// VerbosePrefix marks diagnostic progress lines on stderr.
const VerbosePrefix = "[numfn]"
