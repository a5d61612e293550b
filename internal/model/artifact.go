package model

// Artifact is the result of a pipeline run.
type Artifact struct {
	ModelURL  string
	Vertices  int
	Triangles int
	// FileSize is a human readable size (e.g. "2.4 MB").
	FileSize string
	Format   string
}

// Sample model URLs used as the fabricated pipeline outputs.
const (
	SampleModelURLText  = "https://threejs.org/examples/models/gltf/RobotExpressive/RobotExpressive.glb"
	SampleModelURLImage = "https://threejs.org/examples/models/gltf/Soldier.glb"
	SampleModelURLMulti = "https://threejs.org/examples/models/gltf/Flamingo.glb"
)

// DefaultArtifact is the fixed artifact a pipeline run produces when nothing else is configured.
func DefaultArtifact() Artifact {
	return Artifact{
		ModelURL:  SampleModelURLText,
		Vertices:  15432,
		Triangles: 28764,
		FileSize:  "2.4 MB",
		Format:    "GLB",
	}
}

// SampleModelURL returns the sample model used for a generation type.
func SampleModelURL(t GenerationType) string {
	switch t {
	case GenerationTypeSingleImage:
		return SampleModelURLImage
	case GenerationTypeMultiImage:
		return SampleModelURLMulti
	default:
		return SampleModelURLText
	}
}
