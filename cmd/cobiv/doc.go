// Package main provides the cobiv command line.
//
// cobiv keeps a SQLite catalog of the images found under one or more
// repositories, and lets a user filter, sort, tag and mark them through a
// small command language. Subcommands:
//
//   - init: create the default catalog and register a repository
//   - updatedb: synchronize the catalog with its repositories
//   - shell: read commands from standard input, one per line
//   - exec: run the command lines given as arguments
//   - thumbs: generate missing thumbnails for every cataloged file
//   - version: print build information
//
// Configuration comes from ~/.cobiv/cobiv.yml (see package startup). When
// metrics.addr is set, Prometheus metrics are served on /metrics and a JSON
// status on /healthz for as long as the command runs.
package main
