//go:build ignore

// genhash imprime el hash bcrypt de una contraseña para sembrar usuarios.
//
//	go run tools/genhash.go -password admin123
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := flag.String("password", "", "Contraseña a hashear")
	cost := flag.Int("cost", 10, "Costo bcrypt")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "uso: genhash -password <contraseña>")
		os.Exit(1)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(h))
}
