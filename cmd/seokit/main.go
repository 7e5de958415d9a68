// Command seokit はSEOツール群のAPIを操作するCLI。
// ローカル開発用のスタブバックエンドも同じバイナリから起動できる。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/seokit/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
