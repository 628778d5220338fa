// See controller.go for the package overview: the bootstrap sequence run by
// Start, the shutdown sequence run by Unprepare, and the runtime
// CreateDatabase/DropDatabase entry points.
package lifecycle
