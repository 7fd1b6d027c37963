package internal

import "time"

// Classification describes how populated a workbook is.
type Classification string

const (
	ClassPopulated Classification = "populated"
	ClassSparse    Classification = "sparse"
	ClassEmpty     Classification = "empty"
	ClassError     Classification = "error"
)

// SheetFingerprint is the structural summary of one worksheet. Immutable
// once computed.
type SheetFingerprint struct {
	Name           string   `json:"name"`
	RowCount       int      `json:"rowCount"`
	ColCount       int      `json:"colCount"`
	HeaderLabels   []string `json:"headerLabels"`
	ColumnLabels   []string `json:"columnLabels"`
	PopulatedCells int      `json:"populatedCells"`
	Signature      string   `json:"signature"`
}

// FileFingerprint is the structural summary of one workbook file. Created
// once per file, never mutated, persisted for reuse across runs.
type FileFingerprint struct {
	Path           string             `json:"path"`
	Name           string             `json:"name"`
	Size           int64              `json:"size"`
	ModifiedAt     string             `json:"modifiedAt,omitempty"`
	ContentHash    string             `json:"contentHash,omitempty"`
	Sheets         []SheetFingerprint `json:"sheets"`
	TotalPopulated int                `json:"totalPopulated"`
	Classification Classification     `json:"classification"`
	Error          string             `json:"error,omitempty"`

	// CombinedSignature detects exact structural duplicates; SheetNameKey
	// is the content-insensitive primary clustering key.
	CombinedSignature string `json:"combinedSignature"`
	SheetNameKey      string `json:"sheetNameKey"`
}

// GroupVariance lists structure not shared by every member of a group.
// Diagnostic only.
type GroupVariance struct {
	Group          string              `json:"group"`
	UncommonSheets []string            `json:"uncommonSheets,omitempty"`
	UncommonLabels map[string][]string `json:"uncommonLabels,omitempty"`
}

// FileGroup is a cluster of files sharing a template layout. May be split
// after creation, never merged mid-run.
type FileGroup struct {
	Name         string         `json:"name"`
	Members      []string       `json:"members"`
	SheetNameKey string         `json:"sheetNameKey"`
	MinOverlap   float64        `json:"minOverlap"`
	SubVariants  []string       `json:"subVariants,omitempty"`
	Era          string         `json:"era,omitempty"`
	Variance     *GroupVariance `json:"variance,omitempty"`
}

// CanonicalField names one entry of the extraction vocabulary together
// with its canonical location and the label that sits next to it.
type CanonicalField struct {
	Name  string `json:"name"`
	Sheet string `json:"sheet"`
	Cell  string `json:"cell"`
	Label string `json:"label"`
}

// MappingMatch resolves a canonical field for one template family. The
// resolved sheet/cell is always the canonical address; the matched label
// location is kept for audit.
type MappingMatch struct {
	Field          string  `json:"field"`
	Sheet          string  `json:"sheet"`
	Cell           string  `json:"cell"`
	Tier           int     `json:"tier"`
	Confidence     float64 `json:"confidence"`
	CanonicalSheet string  `json:"canonicalSheet"`
	CanonicalCell  string  `json:"canonicalCell"`
	MatchedSheet   string  `json:"matchedSheet,omitempty"`
	MatchedLabel   string  `json:"matchedLabel,omitempty"`
}

type MappingResult struct {
	Group             string         `json:"group"`
	Representative    string         `json:"representative"`
	Matches           []MappingMatch `json:"matches"`
	Unmapped          []string       `json:"unmapped,omitempty"`
	TierCounts        map[int]int    `json:"tierCounts"`
	OverallConfidence float64        `json:"overallConfidence"`
}

// PropertyMatch links a filename-derived deal name to a canonical
// property name, or records that none was found.
type PropertyMatch struct {
	Source       string   `json:"source"`
	Canonical    string   `json:"canonical,omitempty"`
	Tier         int      `json:"tier"`
	EditDistance *int     `json:"editDistance,omitempty"`
	TokenOverlap *float64 `json:"tokenOverlap,omitempty"`
}

// FileCandidate is what a discovery source knows about one file before
// fingerprinting.
type FileCandidate struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	ContentHash string    `json:"contentHash,omitempty"`
	DealName    string    `json:"dealName,omitempty"`
}

// Trigger records what initiated a value-store write.
const (
	TriggerPipeline = "pipeline"
	TriggerManual   = "manual"
)

type ExtractedValue struct {
	RunID      string `json:"runId"`
	Property   string `json:"property"`
	SourceFile string `json:"sourceFile"`
	GroupName  string `json:"groupName,omitempty"`
	Trigger    string `json:"trigger"`
	Field      string `json:"field"`
	Value      string `json:"value"`
}

// PriorExtraction summarizes an earlier run that already wrote values for
// a property. Used by the conflict check.
type PriorExtraction struct {
	Property   string `json:"property"`
	RunID      string `json:"runId"`
	Trigger    string `json:"trigger"`
	SourceFile string `json:"sourceFile,omitempty"`
	ValueCount int    `json:"valueCount"`
	LastWrite  string `json:"lastWrite,omitempty"`
}

// PropertyRecord is one canonical property from the registry.
type PropertyRecord struct {
	ID        int
	Name      string
	City      *string
	State     *string
	Units     *int
	UpdatedAt *string
	RawJSON   string
}
