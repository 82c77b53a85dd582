// Command sloppy is the operator CLI for the sloppy daemon.
//
// It creates content items from prompts, advances them through drafting,
// rendering and publishing, inspects jobs and costs, and runs a reconnecting
// watch session that follows job outcomes live.
package main
