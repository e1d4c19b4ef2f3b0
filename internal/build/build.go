package build

// Version of subclient. Set to tag in CI during release.
var Version = "0.0.0"
