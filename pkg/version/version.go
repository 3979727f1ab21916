package version

// Version is the current version of the engagement analysis server
const Version = "0.1.0"
