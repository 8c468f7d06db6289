// Package toolrun runs external analysis tools and checks that they are
// installed.
//
// [ExecRunner] is the process adapter used by every tool-backed reviewer: it
// runs a command under the caller's context, caps captured output, and reports
// the exit status without treating a non-zero exit as an error. Interpreting
// exit codes is left to the reviewer that knows the tool's contract.
//
// [Binary] and [EnvDependency] describe reviewer prerequisites. Checks have no side
// effects; [Install] is the explicit path that tries the host package
// managers and, for some tools, a source build.
package toolrun
