package ir

// Version is the IR schema version recorded with stored sweeps.
const Version = "1"
