// Package constants provides shared constants for the curve-forecast application.
package constants

import "time"

// Time units accepted for adoption curves.
const (
	TimeUnitMonths = "months"
	TimeUnitWeeks  = "weeks"
)

// Percent bounds shared by adoption and survival curves
const (
	// PercentMax is the value of a full cohort or a fully penetrated market.
	PercentMax = 100.0

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12
)

// Numeric guards used by the curve evaluators and the fitting engine.
const (
	// RichardsGompertzCutoff is the shape value below which Richards falls back
	// to the Gompertz limit.
	RichardsGompertzCutoff = 1e-3

	// RichardsInflectionFloor bounds nu away from zero in the inflection formula.
	RichardsInflectionFloor = 1e-6

	// BassCeilingFloor bounds the Bass imitation denominator away from zero.
	BassCeilingFloor = 1e-9

	// HazardStep is the central finite difference width in months.
	HazardStep = 0.01

	// HazardMonthZeroSample is where the month 0 hazard of a series is sampled.
	HazardMonthZeroSample = 0.5

	// MaxHazard caps the monthly hazard reported in a series.
	MaxHazard = 1e6

	// BassMaxPeriods bounds how many periods past launch the Bass integrator
	// runs before the curve is treated as settled.
	BassMaxPeriods = 100000.0

	// ZeroVarianceThreshold marks sums of squares treated as zero.
	ZeroVarianceThreshold = 1e-12

	// MAPEFloor is the smallest observed magnitude that enters MAPE.
	MAPEFloor = 1e-9

	// MinimumFitHorizon is the shortest horizon a fit is evaluated over.
	MinimumFitHorizon = 12

	// MinimumFitPoints is the fewest observations a model is fitted to.
	MinimumFitPoints = 2

	// MaxHorizon is the longest adoption or persistency horizon, and the
	// latest observed period, in periods. adoption.CoreParams repeats it in
	// its lte validation tags.
	MaxHorizon = 1200
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatXLSX is the spreadsheet output format
	OutputFormatXLSX = "xlsx"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultFitCacheEntries caps the number of cached fit responses.
	DefaultFitCacheEntries = 256

	// DefaultFitTimeout bounds the fitting time of one request.
	DefaultFitTimeout = 30 * time.Second

	// DefaultMaxFitConcurrency caps concurrent model fits per request.
	DefaultMaxFitConcurrency = 4

	// DefaultMaxFitIterations caps simplex iterations per fit.
	DefaultMaxFitIterations = 5000
)
