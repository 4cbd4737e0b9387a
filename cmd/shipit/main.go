/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package main

import "github.com/chatdocs/shipit/pkg/cli"

func main() {
	cli.Execute()
}
