package fabrik

// Version is the library version, surfaced by the CLI and the C boundary.
const Version = "0.3.0"
