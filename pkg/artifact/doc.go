// Package artifact produces the worker package copied to every instance,
// either an existing file or the output of a local build command.
package artifact
