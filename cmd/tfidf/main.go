package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bcongdon/tfidf"
	"github.com/bcongdon/tfidf/internal/pkg/mr"
)

var printOutput = pflag.Bool("print", false, "Print the computed weights once the job finishes")

// printWeights writes the output lines of the job in location to w, sorted
// by term and document.
func printWeights(w io.Writer, location string) error {
	records, err := tfidf.ReadOutput(location)
	if err != nil {
		return err
	}
	for _, record := range records {
		if _, err := fmt.Fprintln(w, record); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	driver := mr.NewDriver(tfidf.NewJob())
	driver.Main()

	if *printOutput {
		if err := printWeights(os.Stdout, viper.GetString("working_location")); err != nil {
			log.Fatal(err)
		}
	}
}
