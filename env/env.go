package env

type Args struct {
	Test    *bool
	Verbose *bool
	API     *string
	Broker  *string
	Store   *string
}
