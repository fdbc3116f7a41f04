// Package staging manages the scratch directory downloads land in before they
// are stored. The janitor removes files left behind by crashed or abandoned
// submissions; FreeBytes backs the disk-space preflight.
package staging
