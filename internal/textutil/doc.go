// Package textutil sanitizes names derived from video metadata, primarily
// file names for published recap artifacts.
package textutil
