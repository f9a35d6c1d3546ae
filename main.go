package main

func main() {
	err := newRootCmd().Execute()

	if logSink != nil {
		logSink.Close()
	}

	if err != nil {
		exitOnError(err)
	}
}
