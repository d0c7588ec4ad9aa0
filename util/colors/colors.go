// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package colors

import "fmt"

var Red = "\033[31;1m"
var Blue = "\033[34;1m"
var Yellow = "\033[33;1m"
var Grey = "\033[90m"
var Mint = "\033[38;5;48;1m"

var Clear = "\033[0;0m"

func PrintBlue(args ...interface{}) {
	print(Blue)
	fmt.Print(args...)
	println(Clear)
}

func PrintGrey(args ...interface{}) {
	print(Grey)
	fmt.Print(args...)
	println(Clear)
}

func PrintMint(args ...interface{}) {
	print(Mint)
	fmt.Print(args...)
	println(Clear)
}
